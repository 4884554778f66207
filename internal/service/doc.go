// Package service is the job submission boundary of the cracker.
//
// Overview
// A Service resolves a wordlist name, opens the target archive, records the
// job as STARTED in the store and hands it over to the crack.Coordinator.
// When the job's Future settles, the outcome is persisted: FOUND together
// with the password and the time it took, NOT_FOUND, FAILED with the reason
// or CANCELLED.
//
// Data flow:
//
//   Service.Start          store.Store            crack.Coordinator
//       |                      |                        |
//       | CreateJob(STARTED) ->|                        |
//       | Crack ------------------------------------->  | driver + pool
//       |                      |                        |
//       |<----------------------------- Future settles -|
//       | SaveResult / UpdateStatus ->|                 |
//
// Status reads the store only. A job which finished is still reported with
// its terminal status until the store retention drops it, an id the store
// never saw is INVALID_ID.
//
// Invariants:
//   - every started job gets exactly one terminal status in the store
//   - Wait returns after that status is persisted
//   - Close cancels running jobs and waits for their persistence
package service
