// Package mqtt provides the publish/subscribe transport for ConsultEase Core.
//
// This package manages:
//   - Connection to the MQTT broker with auto-reconnect
//   - Retained status publishing with QoS guarantees
//   - Topic subscriptions, restored automatically after reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// ConsultEase uses MQTT as the message bus between faculty units and the
// central system. Unit presence and manual status flow unit → central on
// retained topics so a late-joining subscriber immediately sees current
// state; consultation requests flow the other way on a non-retained topic.
//
//	Faculty Unit ↔ MQTT Broker ↔ Central System
//
// Publish calls made while disconnected fail fast with ErrNotConnected and
// never block; the resilience layer is responsible for queuing them.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.Namespace)
//	err = client.Subscribe(topics.AllUnitPresence(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
