// Package lantz is the descriptor layer shared by all instrument drivers.
//
// An instrument registers three kinds of descriptors with its Driver:
//
//	Feat      a readable, optionally writable attribute
//	DictFeat  a family of features addressed by a fixed key set
//	Action    a one-shot command
//
// Callers go through Get, Set, GetIndexed, SetIndexed, SetIndexedMany and
// Invoke. The descriptor layer converts units, checks limits, maps
// enumerations and caches read-once values before the device functions run.
package lantz
