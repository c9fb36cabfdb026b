// Package syncer orchestrates bidirectional synchronization between the local
// record store and the remote sync API.
//
// One run works in three ordered phases:
//
//  1. Category sync: the server's category list replaces the local one. This
//     always happens before task work because task display depends on current
//     category metadata. A transport failure here is reported but does not
//     stop the task phases.
//  2. Pull: if the server's version counter is at or ahead of the local
//     high-water mark, the puller fetches the missing records and merges them.
//     Locally dirty records keep their user-edited fields (client wins on
//     content) while their version baseline advances (server wins on
//     ordering).
//  3. Push: dirty records are uploaded in one batch and acknowledged records
//     are marked synced. The push phase runs even when the pull phase found
//     nothing, and even when the pull phase failed on the network, because
//     the two phases operate on disjoint record sets.
//
// Runs are single-flight: starting a run while one is in progress joins the
// in-flight run and returns its result. Retrying after a failure is simply
// running again; every phase is idempotent.
package syncer
