// Package ir holds the value and transaction types shared by every other
// internal package. ir imports nothing internal.
//
// Key design constraints:
//   - Values are a sealed union with no float variant; numbers are int64 so
//     increments and their inverses are exact
//   - Documents, contexts and update payloads are all Objects
//   - Transactions form an explicit tree: mutations are leaves, TxApplyIf
//     groups are all-or-nothing internal nodes
//   - Stored bytes and content IDs use the canonical encoding in canonical.go
package ir
