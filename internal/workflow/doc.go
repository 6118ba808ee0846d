// Package workflow advances queue items through the configured processing
// stages.
//
// The Manager runs two lanes. The validation lane inspects and validates
// archives; the tool lane hands validated archives to the external command.
// Each lane runs a bounded pool of workers that atomically claim the oldest
// item waiting in one of the lane's start statuses, so items are dispatched
// in input order. A failing stage marks only its own item failed; workers move
// on to the next item. Cancellation stops claiming and rolls any interrupted
// item back to the start status of its stage.
package workflow
