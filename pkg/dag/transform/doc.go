// Package transform provides algorithms that annotate a save graph.
//
// [AssignLevels] computes bottom-up levels: level 0 holds objects with no
// unsaved children, level k objects whose deepest child is at level k-1.
// Committing levels in ascending order guarantees every child has a
// reference before its parent is encoded. The dry-run planner uses this to
// describe the rounds a deep save will perform.
package transform
