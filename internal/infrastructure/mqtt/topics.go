package mqtt

import "fmt"

// Topic prefixes for the access gateway.
const (
	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// TopicPrefixAudit is the base for audit trail fan-out.
	TopicPrefixAudit = "graylogic/audit"
)

// Topics provides builders for the gateway's MQTT topics.
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// Audit returns the topic committed audit entries of a source are published on.
//
// Example: graylogic/audit/wsapi
func (Topics) Audit(source string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAudit, source)
}

// AllAudit returns a pattern matching every audit source.
//
// Pattern: graylogic/audit/+
func (Topics) AllAudit() string {
	return TopicPrefixAudit + "/+"
}
