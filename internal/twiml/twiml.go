package twiml

import (
	"bytes"
	"encoding/xml"
)

// Minimal TwiML response builder for the webhook surface. Documents are built
// from xml-marshaled structs so reserved characters in user or model text are
// escaped by construction, never by hand.

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// Response is one voice-control document returned from a webhook handler.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

// Say speaks text with the carrier's built-in voice.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Play streams audio from a URL, or sends DTMF tones when Digits is set.
type Play struct {
	XMLName xml.Name `xml:"Play"`
	Digits  string   `xml:"digits,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Gather collects speech or keyed input and posts the result to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	SpeechModel   string   `xml:"speechModel,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Verbs         []any    `xml:",any"`
}

// Record starts call recording and reports status to the callback URL.
type Record struct {
	XMLName                 xml.Name `xml:"Record"`
	Action                  string   `xml:"action,attr,omitempty"`
	Method                  string   `xml:"method,attr,omitempty"`
	MaxLength               int      `xml:"maxLength,attr,omitempty"`
	Trim                    string   `xml:"trim,attr,omitempty"`
	RecordingStatusCallback string   `xml:"recordingStatusCallback,attr,omitempty"`
	RecordingStatusMethod   string   `xml:"recordingStatusCallbackMethod,attr,omitempty"`
}

// Redirect transfers control of the call to another webhook URL.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Pause waits silently for Length seconds.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Builder accumulates verbs for one response document.
type Builder struct {
	resp Response
}

// NewBuilder returns an empty document builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(v any) *Builder {
	b.resp.Verbs = append(b.resp.Verbs, v)
	return b
}

// Say appends a built-in-voice speech verb. Escaping happens at render time.
func (b *Builder) Say(text string) *Builder {
	return b.add(Say{Voice: DefaultVoice, Language: DefaultLanguage, Text: text})
}

// Play appends an audio playback verb pointing at a stream URL.
func (b *Builder) Play(url string) *Builder {
	return b.add(Play{URL: url})
}

// Speak prefers synthesized audio when a stream URL is available and falls
// back to the built-in voice otherwise.
func (b *Builder) Speak(text, audioURL string) *Builder {
	if audioURL != "" {
		return b.Play(audioURL)
	}
	return b.Say(text)
}

// PlayDigits appends a DTMF tone burst. A single "1" early in the document
// keeps some carriers from trimming the audio lead-in.
func (b *Builder) PlayDigits(digits string) *Builder {
	return b.add(Play{Digits: digits})
}

// Gather appends a speech-input prompt posting its result to action. The
// prompt is spoken inside the gather so the far end can barge in.
func (b *Builder) Gather(action, promptText, promptAudioURL string) *Builder {
	g := Gather{
		Input:         "speech",
		Timeout:       10,
		SpeechTimeout: "auto",
		SpeechModel:   "phone_call",
		Language:      DefaultLanguage,
		Action:        action,
		Method:        "POST",
	}
	if promptAudioURL != "" {
		g.Verbs = append(g.Verbs, Play{URL: promptAudioURL})
	} else if promptText != "" {
		g.Verbs = append(g.Verbs, Say{Voice: DefaultVoice, Language: DefaultLanguage, Text: promptText})
	}
	return b.add(g)
}

// Record appends a recording verb reporting to the given callback URLs.
func (b *Builder) Record(actionURL, statusURL string) *Builder {
	return b.add(Record{
		Action:                  actionURL,
		Method:                  "POST",
		MaxLength:               3600,
		Trim:                    "trim-silence",
		RecordingStatusCallback: statusURL,
		RecordingStatusMethod:   "POST",
	})
}

// Redirect appends a control transfer to another webhook.
func (b *Builder) Redirect(url string) *Builder {
	return b.add(Redirect{Method: "POST", URL: url})
}

// Pause appends a silent wait.
func (b *Builder) Pause(seconds int) *Builder {
	return b.add(Pause{Length: seconds})
}

// Hangup appends an explicit call end.
func (b *Builder) Hangup() *Builder {
	return b.add(Hangup{})
}

// Render serializes the document. Render never fails on the verb set above;
// on a marshal error it degrades to an empty acknowledgement so a webhook
// handler always has something valid to return.
func (b *Builder) Render() string {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(b.resp); err != nil {
		return Ack()
	}
	_ = enc.Flush()
	return buf.String()
}

// Ack is the empty acknowledgement returned from status and recording
// webhooks. It is the only legal empty document.
func Ack() string {
	return xmlHeader + "<Response></Response>"
}

// Default voice identity used when no agent-specific voice is known.
const (
	DefaultVoice    = "man"
	DefaultLanguage = "en-US"
)
