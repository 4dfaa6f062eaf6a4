/*
Package session serializes access to persisted runs.

A Manager sits in front of a ports.RunStore. Operations on the same run ID are
serialized with reference-counted local locks and, when a DistributedLocker is
configured, with a lock shared by every replica.
*/
package session
