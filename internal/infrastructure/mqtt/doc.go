// Package mqtt publishes Librarium Core events to an MQTT broker.
//
// Catalog changes (book created, updated, deleted) are published to
// librarium/catalog/{event} so downstream consumers such as search
// indexers or branch displays can react without polling the API. The
// core's own status is retained on librarium/system/status, with a Last
// Will so an unexpected exit is visible to subscribers.
//
// MQTT is optional: when mqtt.enabled is false the API simply skips
// publishing.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishEvent(mqtt.Topics{}.CatalogEvent("book_created"), book)
package mqtt
