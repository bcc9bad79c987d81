package mqtt

import "fmt"

// Topic prefixes for the Librarium MQTT hierarchy.
const (
	TopicPrefix        = "librarium"
	TopicPrefixCatalog = "librarium/catalog"
	TopicPrefixSystem  = "librarium/system"
)

// Topics provides builders for Librarium MQTT topics.
//
//	topic := mqtt.Topics{}.CatalogEvent("book_created")
//	// Returns: "librarium/catalog/book_created"
type Topics struct{}

// CatalogEvent returns the topic for a catalog change event.
//
// Example: librarium/catalog/book_updated
func (Topics) CatalogEvent(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCatalog, eventType)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: librarium/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
