// Package orchestrator brings an edge node up and keeps it reporting.
//
// The startup sequence is strictly ordered:
//
//	init -> link-configuring -> link-connecting -> link-associated
//	     -> session-establishing -> subscribing -> monitoring
//
// Any failure before monitoring is fatal and is returned as a *StageError
// naming the stage. The link wait is bounded by wifi.associate_timeout and
// fails with ErrLinkTimeout.
//
// During monitoring the node logs its IP info every monitor.interval and
// optionally writes a sample to InfluxDB. When wifi.reassociate is set a
// supervisor goroutine watches for link loss and requests association
// again with exponential backoff (state reassociating). The broker
// transport reconnects on its own.
//
// Inbound session events flow through an events.Bus to a single
// events.Handler goroutine, so the handler never runs concurrently with
// itself.
//
// Usage:
//
//	orch, err := orchestrator.New(&orchestrator.Runtime{
//	    Config:    cfg,
//	    Logger:    log,
//	    Link:      link.NewManager(driver),
//	    Transport: mqtt.New(cfg.MQTT),
//	    Handler:   events.NewHandler(log, events.DropEmptyPayloads),
//	})
//	if err != nil {
//	    return err
//	}
//	return orch.Run(ctx)
package orchestrator
