// Package entity defines the application-side object model persisted by a
// deep save.
//
// An [Entity] has a class name, an optional remote identifier and a set of
// fields. Fields may hold scalars, other entities, homogeneous sequences of
// entities, or [Reference] values pointing at records that already exist.
//
//	author := entity.New("User").Set("name", "Alice")
//	post := entity.New("Post").
//	    Set("title", "Hello").
//	    Set("author", author).
//	    Set("tags", []*entity.Entity{entity.Existing("Tag", "t1")})
//
// Every instance created by [New] carries a [LocalID], a random identifier
// that stays stable for the lifetime of the instance. A deep save reports
// assigned references keyed by LocalID, and [Apply] copies them back into
// the caller's graph.
package entity
