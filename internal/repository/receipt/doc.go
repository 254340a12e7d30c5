// Package receipt implements persistence for installation receipts.
//
// The FileRepository stores one JSON document per installed package and
// exposes a Repository interface that the install services depend on.
package receipt
