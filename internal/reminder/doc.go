// Package reminder implements the reminder feature: the /remind command
// family that creates pending reminders, and the dispatcher that scans the
// store on a fixed schedule and delivers each due reminder to its original
// chat, falling back to a direct message when that chat is gone.
//
// Delivery is at-most-once by design: a reminder's row is deleted as soon as
// its delivery has been initiated, so a failed send is logged and dropped,
// never retried.
package reminder
