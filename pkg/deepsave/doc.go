// Package deepsave persists a root entity together with every unsaved
// entity reachable from its fields.
//
// # Algorithm
//
// A save runs as one sequential pipeline:
//
//  1. Walk: depth-first over the root's fields, collecting unsaved
//     entities and parent→child edges. Entities that already carry an ID
//     are leaves and are never walked.
//  2. Check: a call-scoped arena tracks each entity as unvisited,
//     in progress or resolved. Reaching an in-progress entity again is a
//     cycle and fails the call before any request.
//  3. Pre-flight: every entity is encoded once with placeholder
//     references, so unsupported field values also fail before any request.
//  4. Rounds: entities whose children all have references are ready.
//     Ready entities are grouped by class and each group goes out as one
//     batch request. Returned references are substituted into the parents,
//     which may then become ready. A round with any failure ends the call.
//  5. Root: the root is encoded with its children's references and saved
//     with a single non-batched request.
//
// # Identity
//
// Entities are tracked by instance, never by value. Two distinct instances
// with equal fields are saved twice. The same instance reached along two
// paths (a diamond) is saved once.
//
// # Usage
//
//	saver := deepsave.New(transport.Direct(memory.New()), deepsave.Options{})
//	res, err := saver.Save(ctx, post)
//	if err != nil {
//	    return err
//	}
//	entity.Apply(post, res.Refs)
//
// Failures are typed: [CircularDependencyError], [EncodingError],
// [ChildSaveError] and [TransportError]. Each maps to a code in
// [github.com/matzehuels/deepsave/pkg/errors]. Nothing is rolled back;
// entities committed before a failure stay on the server and are listed
// in the error's Persisted field.
package deepsave
