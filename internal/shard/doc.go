// Package shard plays the collaborator role spec.md §4.7 describes
// from the coordinator's side: applying each TX_INIT's writes in the
// order they are listed, running node programs at most once per
// request, and acking heartbeats. Messages are not reordered by qts:
// separate TX_INITs are handled by whichever worker receives them and
// may be applied concurrently. The real graph engine is out of scope;
// see internal/graphstore.
package shard
