// Package auditor lints package descriptors.
//
// Audit reports consistency problems a parser would accept but an installer
// would trip over, such as install sources no artifact produces or a release
// URL that points at a different version. AuditLineage checks that the
// releases of one package properly supersede each other.
package auditor
