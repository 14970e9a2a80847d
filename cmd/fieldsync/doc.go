// Package main hosts the fieldsync CLI, the foreground half of the order
// queue.
//
// One-shot commands submit orders, inspect and repair the queue, and poke
// the daemon over IPC. Queue commands talk to the daemon when it is running
// and open the shared store directly otherwise. `fieldsync run` keeps a
// foreground processor alive in the terminal and `fieldsync watch` follows
// daemon messages.
//
// Keep this package lean: add behaviour to the internal packages first and
// surface it here through commands or flags.
package main
