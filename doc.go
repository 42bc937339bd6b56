// Package weft contains the core components of Weft, a dataframe engine whose
// logical operations execute identically on a single machine or across a cluster
// of workers. This root package defines the types employed during regular use of
// the engine, as well as in its extension, and is an excellent overview of Weft's
// key concepts.
package weft
