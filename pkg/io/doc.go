// Package io reads and writes object documents: a keyed set of objects
// whose fields may link to each other, decoded into an [entity.Entity]
// graph ready for a deep save.
//
// # Document Format
//
//	{
//	  "root": "post",
//	  "objects": {
//	    "post":  {"class": "Post", "fields": {
//	               "title": "Hello",
//	               "author": {"$ref": "alice"},
//	               "tags": [{"$ref": "t1"}, {"$ref": "t2"}]}},
//	    "alice": {"class": "User", "fields": {"name": "Alice"}},
//	    "t1":    {"class": "Tag", "objectId": "abc123"},
//	    "t2":    {"class": "Tag", "fields": {"name": "go"}}
//	  }
//	}
//
// Field values are plain JSON, with these special objects:
//
//   - {"$ref": "key"}: the object stored under key
//   - {"$pointer": {"class": "C", "objectId": "id"}}: an existing record
//     that is not part of the document
//   - {"$date": "2024-01-02T15:04:05Z"}: a time.Time
//   - {"$bytes": "aGVsbG8="}: base64 bytes
//
// An array whose elements are all $ref objects becomes a []*entity.Entity.
// Objects with an objectId are treated as already saved and referenced by
// pointer. Documents may contain cycles; the save engine reports them.
//
// The same structure can be written in YAML. [Import] picks the decoder
// from the file extension.
//
// # Export
//
// After a save, [Graph.Document] produces the document again with every
// saved object's objectId filled in, so saving it a second time updates
// the root instead of creating new records. [NewReport] summarizes the
// outcome per document key.
package io
