// Package rollback undoes completed process steps.
//
// InvertUpdate and InvertOperator compute the inverse of an update under
// the operator grammar of package ir. A Compensator turns the context
// captured when a step ran into zero or one compensating transaction,
// dispatching on the kind of step.
//
// Inverses are exact for $inc and $rename only. Plain assignments invert to
// $unset and pulls invert to pushes, both of which lose information the
// update never recorded. $unset has no inverse at all.
package rollback
