// Package auth keeps a local directory of user records in agreement with an
// external identity provider and decides who may reach which pages.
//
// Reconciliation:
//   - SyncEngine.Reconcile maps a verified Claim onto a UserRecord. The first
//     sighting of a subject creates the record with the standard role; later
//     calls refresh only the provider owned fields (email, verification,
//     display name, photo). Role, profile and created_at are never touched.
//   - Every read-modify-write runs inside a per subject SubjectLocker region
//     and the directory write is conditional on the updated_at that was read,
//     so concurrent syncs for one subject serialize and never lose an update.
//   - An email owned by another subject fails with ErrEmailConflict and
//     nothing is written.
//
// Deletion and sign-out:
//   - SyncEngine.DeleteAccount writes account_deletion_requested, then an
//     account_deleted entry carrying the record snapshot, and only then
//     deactivates and removes the record.
//   - SessionTerminator.Logout always reports success to the caller. The
//     internal outcome (revoked, revocation_failed, no_session) is logged,
//     counted and, when revoked, audited.
//
// Access control:
//   - Decide is a pure function of the identity state, the page requirement
//     and the current location. Administrator status comes from the record
//     role only.
//   - middleware/routeguard performs the coarse, cookie presence check before
//     any handler runs; PageAuthenticator.RequireAccess performs the full
//     check for server rendered pages.
//
// Stores: the bun backed repositories in this package (SQLite, Postgres) and
// repository/mongostore implement Directory and ActivityLog. Identity
// verifiers live under provider/.
package auth
