// Package permission holds the role-mapping configuration and the page-level
// permission evaluator.
//
// One configuration document maps Discord role ids to an internal role tag, a
// flat list of coarse (legacy) permissions and an ordered list of page
// permissions. The evaluator answers "may this principal perform action A on
// page P", optionally narrowed to a field or to an item owned by someone.
//
// # Decision order
//
//  1. No principal: deny.
//  2. Super-admin: allow with no restrictions.
//  3. Page permission resolved from the principal's role mapping: action,
//     field and condition checks. A principal whose mapping was deleted or
//     deactivated is denied outright.
//  4. Otherwise the legacy coarse-permission table and the hardcoded
//     subdivision-overseer grants.
//
// The evaluator never returns errors. Configuration load failures degrade to
// the seeded defaults, which grant nothing beyond the legacy table; principals
// bound to a mapping are denied until the stored configuration is readable.
package permission
