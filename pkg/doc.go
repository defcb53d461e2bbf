// Package pkg provides the libraries behind deepsave: persisting a graph
// of linked application objects to a REST backend in one call.
//
// # Overview
//
// A caller builds [entity] values whose fields may point at other entities
// and calls [deepsave.Saver.Save] on the root. The engine walks the graph,
// rejects cycles, and saves unsaved children before the parents that
// reference them, grouping ready objects of one class into batch requests.
// The packages are organized into four areas:
//
//  1. Core - [entity], [codec], [dag], [deepsave]
//  2. Transport - [transport], [transport/rest], [httputil]
//  3. Backend - [server] and the [store] implementations
//  4. Support - [cache], [config], [io], [observability], [errors],
//     [render/nodelink]
//
// # Data Flow
//
//	entity graph
//	     ↓
//	[deepsave] walk + cycle check
//	     ↓
//	rounds of batches, children first
//	     ↓
//	[transport] (REST client or a store directly)
//	     ↓
//	[server] → [store] (memory, sqlite, redis, mongo)
//
// # Quick Start
//
//	import (
//	    "github.com/matzehuels/deepsave/pkg/deepsave"
//	    "github.com/matzehuels/deepsave/pkg/entity"
//	    "github.com/matzehuels/deepsave/pkg/transport/rest"
//	)
//
//	client, _ := rest.New(rest.Config{BaseURL: "http://localhost:1337/parse", AppID: "app"})
//	author := entity.New("User").Set("name", "Alice")
//	post := entity.New("Post").Set("title", "Hello").Set("author", author)
//
//	res, err := deepsave.New(client, deepsave.Options{}).Save(ctx, post)
//	if err != nil {
//	    return err
//	}
//	entity.Apply(post, res.Refs) // copy assigned IDs back
//
// # Errors
//
// A failed save returns one of four typed errors, each matching a sentinel
// with errors.Is and carrying a machine-readable code from [errors]:
// circular dependency, encoding failure, child save failure, and transport
// failure. Nothing is sent when the graph has a cycle or a field cannot be
// encoded.
//
// [entity]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/entity
// [codec]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/codec
// [dag]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/dag
// [deepsave]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/deepsave
// [deepsave.Saver.Save]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/deepsave#Saver.Save
// [transport]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/transport
// [transport/rest]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/transport/rest
// [httputil]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/httputil
// [server]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/server
// [store]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/store
// [cache]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/cache
// [config]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/config
// [io]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/io
// [observability]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/errors
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/deepsave/pkg/render/nodelink
package pkg
