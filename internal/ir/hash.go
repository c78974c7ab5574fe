package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the derivation later.
const (
	DomainBundle     = "procflow/bundle/v1"
	DomainExecution  = "procflow/execution/v1"
	DomainCheckpoint = "procflow/checkpoint/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func contentID(domain string, obj Object) (string, error) {
	data, err := Encode(obj)
	if err != nil {
		return "", fmt.Errorf("%s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// BundleID derives the id of the group the gate wraps around an original
// transaction and its companions, from the ids of its members in order.
// Re-submitting the same transaction yields the same bundle id.
func BundleID(memberIDs []string) string {
	members := make(Array, len(memberIDs))
	for i, id := range memberIDs {
		members[i] = String(id)
	}
	id, _ := contentID(DomainBundle, Object{"members": members})
	return id
}

// ExecutionID derives the id of an execution started for card under
// process by the transaction triggerTx.
func ExecutionID(card Ref, process string, triggerTx string) Ref {
	id, _ := contentID(DomainExecution, Object{
		"card":    String(card),
		"process": String(process),
		"tx":      String(triggerTx),
	})
	return Ref(id)
}

// CheckpointID derives the id of a checkpoint requested by the action at
// actionIndex of a transition fired for execution by triggerTx.
func CheckpointID(execution Ref, transition string, actionIndex int, triggerTx string) Ref {
	id, _ := contentID(DomainCheckpoint, Object{
		"action":     Int(actionIndex),
		"execution":  String(execution),
		"transition": String(transition),
		"tx":         String(triggerTx),
	})
	return Ref(id)
}
