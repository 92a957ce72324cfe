package platforms

import (
	"net/url"
	"strings"
)

type refKind int

const (
	refUnknown refKind = iota
	refChannelID
	refUsername
	refHandle
)

// channelRef is a user-supplied YouTube channel identifier, classified.
type channelRef struct {
	kind  refKind
	value string
}

func isChannelID(s string) bool {
	return strings.HasPrefix(s, "UC") && len(s) == 24
}

// parseChannelRef accepts a raw channel id, a /channel/, /user/ or /@handle
// URL, a bare @handle, or a bare user name.
func parseChannelRef(input string) channelRef {
	input = strings.TrimSpace(input)
	if input == "" {
		return channelRef{}
	}
	if isChannelID(input) {
		return channelRef{refChannelID, input}
	}

	if strings.Contains(input, "youtube.com/") {
		raw := input
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return channelRef{}
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case len(segments) >= 2 && segments[0] == "channel":
			return channelRef{refChannelID, segments[1]}
		case len(segments) >= 2 && segments[0] == "user":
			return channelRef{refUsername, segments[1]}
		case len(segments) >= 1 && strings.HasPrefix(segments[0], "@"):
			return channelRef{refHandle, strings.TrimPrefix(segments[0], "@")}
		}
		return channelRef{}
	}

	if strings.HasPrefix(input, "@") {
		handle := strings.SplitN(strings.TrimPrefix(input, "@"), "/", 2)[0]
		return channelRef{refHandle, handle}
	}
	return channelRef{refUsername, input}
}
