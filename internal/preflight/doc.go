// Package preflight provides readiness checks for the endpoints and
// filesystem paths fieldsync depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check so a
//     misconfigured endpoint shows up before orders start piling up.
//   - The CLI "fieldsync status" command renders the same results.
//
// Optional integrations are skipped when they are not configured.
package preflight
