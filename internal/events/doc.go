// Package events models inbound session events and the handler that
// reports them.
//
// A transport (MQTT 3.1.1 or 5) turns library callbacks into Event values
// and hands them to a Bus. The Bus delivers them, in order, to a single
// consumer goroutine running the Handler, which writes one line per event:
//
//	connected to broker
//	subscription confirmed id=1 filter=#
//	message received payload=21.5 topic=sensors/kitchen/temp
//
// Messages with an empty payload are dropped under the default
// DropEmptyPayloads policy. A missing topic is printed as "N/A".
package events
