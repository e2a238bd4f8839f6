package redis

// Key prefixes for primary entity storage.
const (
	prefixPartner    = "gw:ptr:"
	prefixCredential = "gw:cred:"
	prefixEventType  = "gw:evtype:"
	prefixEndpoint   = "gw:ep:"
	prefixEvent      = "gw:evt:"
	prefixDelivery   = "gw:del:"
	prefixDLQ        = "gw:dlq:"
	prefixCounter    = "gw:rl:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventTypeName = "gw:u:evtype:name:"
	uniqueEventIdem     = "gw:u:evt:idem:"
	uniqueCredActive    = "gw:u:cred:active:" // + partnerID + ":" + purpose
	uniqueDeliveryPair  = "gw:u:del:pair:"    // + eventID + ":" + endpointID
)

// Key prefixes for sorted set indexes.
const (
	zPartnerAll     = "gw:z:ptr:all"
	zCredPartner    = "gw:z:cred:ptr:" // + partner ID
	zEventTypeAll   = "gw:z:evtype:all"
	zEventTypeGroup = "gw:z:evtype:group:" // + group name
	zEndpointOwner  = "gw:z:ep:ptr:"       // + partner ID
	zEventAll       = "gw:z:evt:all"
	zEventPartner   = "gw:z:evt:ptr:" // + partner ID
	zDeliveryEP     = "gw:z:del:ep:"  // + endpoint ID
	zDeliveryEvt    = "gw:z:del:evt:" // + event ID
	zDeliveryDue    = "gw:z:del:due"
	zDeliveryLeased = "gw:z:del:leased" // claimed rows, scored by lease expiry
	zDLQAll         = "gw:z:dlq:all"
	zDLQPartner     = "gw:z:dlq:ptr:" // + partner ID
	zDLQEndpoint    = "gw:z:dlq:ep:"  // + endpoint ID
)

// Key prefixes for set indexes.
const (
	sEventTypeActive = "gw:s:evtype:active"
	sEndpointEnabled = "gw:s:ep:ptr:" // + partnerID + ":enabled"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// enabledSetKey returns the set key for enabled endpoints of a partner.
func enabledSetKey(partnerID string) string {
	return sEndpointEnabled + partnerID + ":enabled"
}

// credActiveKey returns the unique key guarding one active credential per
// (partner, purpose) pair.
func credActiveKey(partnerID, purpose string) string {
	return uniqueCredActive + partnerID + ":" + purpose
}

// deliveryPairKey returns the unique key guarding one in-flight delivery per
// (event, endpoint) pair.
func deliveryPairKey(eventID, endpointID string) string {
	return uniqueDeliveryPair + eventID + ":" + endpointID
}
