package onvifservice

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// Endpoint is everything needed to reach and authenticate against one camera.
type Endpoint struct {
	Hostname string
	Port     int
	Username string
	Password string
}

// DeviceURL is the well-known ONVIF device service address.
func (e Endpoint) DeviceURL() string {
	return fmt.Sprintf("http://%s:%d/onvif/device_service", e.Hostname, portOrDefault(e.Port))
}

// Message is one decoded notification from a pull point.
type Message struct {
	Topic  string
	Time   time.Time
	Source map[string]string
	Data   map[string]string
}

// Value returns a named data item. Source items are never consulted.
func (m Message) Value(name string) (string, bool) {
	v, ok := m.Data[name]
	return v, ok
}

// FaultError is a SOAP fault returned by the camera.
type FaultError struct {
	Code    string
	Subcode string
	Reason  string
}

func (f *FaultError) Error() string {
	if f.Subcode != "" {
		return fmt.Sprintf("soap fault %s/%s: %s", f.Code, f.Subcode, f.Reason)
	}
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.Reason)
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    body     `xml:"Body"`
}

type body struct {
	Fault        *fault               `xml:"Fault"`
	DateTime     *dateTimeResponse    `xml:"GetSystemDateAndTimeResponse"`
	Capabilities *capabilitiesResult  `xml:"GetCapabilitiesResponse"`
	Subscription *subscriptionResult  `xml:"CreatePullPointSubscriptionResponse"`
	Pull         *pullMessagesResult  `xml:"PullMessagesResponse"`
	Renew        *terminationResponse `xml:"RenewResponse"`
}

type fault struct {
	Code    string `xml:"Code>Value"`
	Subcode string `xml:"Code>Subcode>Value"`
	Reason  string `xml:"Reason>Text"`
}

type dateTimeResponse struct {
	UTC struct {
		Hour   int `xml:"Time>Hour"`
		Minute int `xml:"Time>Minute"`
		Second int `xml:"Time>Second"`
		Year   int `xml:"Date>Year"`
		Month  int `xml:"Date>Month"`
		Day    int `xml:"Date>Day"`
	} `xml:"SystemDateAndTime>UTCDateTime"`
}

func (d *dateTimeResponse) Time() (time.Time, bool) {
	u := d.UTC
	if u.Year == 0 {
		return time.Time{}, false
	}
	return time.Date(u.Year, time.Month(u.Month), u.Day, u.Hour, u.Minute, u.Second, 0, time.UTC), true
}

type capabilitiesResult struct {
	EventsXAddr string `xml:"Capabilities>Events>XAddr"`
}

type subscriptionResult struct {
	Address         string `xml:"SubscriptionReference>Address"`
	CurrentTime     string `xml:"CurrentTime"`
	TerminationTime string `xml:"TerminationTime"`
}

type terminationResponse struct {
	TerminationTime string `xml:"TerminationTime"`
}

type pullMessagesResult struct {
	CurrentTime     string                `xml:"CurrentTime"`
	TerminationTime string                `xml:"TerminationTime"`
	Notifications   []notificationMessage `xml:"NotificationMessage"`
}

type notificationMessage struct {
	Topic   string `xml:"Topic"`
	Message struct {
		UtcTime string       `xml:"UtcTime,attr"`
		Source  []simpleItem `xml:"Source>SimpleItem"`
		Data    []simpleItem `xml:"Data>SimpleItem"`
	} `xml:"Message>Message"`
}

type simpleItem struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

func (n notificationMessage) decode() Message {
	msg := Message{
		Topic:  n.Topic,
		Source: make(map[string]string, len(n.Message.Source)),
		Data:   make(map[string]string, len(n.Message.Data)),
	}
	if t, err := time.Parse(time.RFC3339, n.Message.UtcTime); err == nil {
		msg.Time = t
	}
	for _, item := range n.Message.Source {
		msg.Source[item.Name] = item.Value
	}
	for _, item := range n.Message.Data {
		msg.Data[item.Name] = item.Value
	}
	return msg
}

// xsdDuration renders a duration the way ONVIF expects it (PT60S).
func xsdDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return "PT" + strconv.FormatInt(secs, 10) + "S"
}
