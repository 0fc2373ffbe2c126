// Package knowledge implements the cross-stage knowledge context and its
// transfer layer.
//
// A Context is the accumulated payload a workflow carries between steps. When
// control passes from one stage to another the payload is serialized under the
// source stage's conventions and deserialized under the target stage's
// conventions, so each side only needs to know its own field names.
//
// Serialization applies at most one transform rule, looked up by the exact
// (source, target) stage pair and falling back to a (source, "*") wildcard.
// Rules rename or derive fields but never delete unmapped ones. Fields the
// rule expected but did not find are surfaced as warnings on the serialized
// payload rather than being filled with sentinel text.
package knowledge
