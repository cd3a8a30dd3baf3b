// Package notify broadcasts instance-scoped "store changed" events.
//
// Subscribers register for one instance identity and receive an Event
// after every successful flush of that instance. Delivery is best-effort:
// a subscriber whose buffer is full misses the event, which is harmless
// because events carry no payload beyond "re-query now".
package notify
