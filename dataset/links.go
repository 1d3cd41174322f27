package dataset

import (
	"net/url"
	"slices"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
)

// LinkRule pins a URL field to https and a fixed set of hosts.
type LinkRule struct {
	Field string
	Hosts []string
}

// DefaultLinkRules are the reference-site fields records may carry.
var DefaultLinkRules = []LinkRule{
	{Field: "ann_url", Hosts: []string{"www.animenewsnetwork.com", "animenewsnetwork.com"}},
	{Field: "mal_url", Hosts: []string{"myanimelist.net"}},
}

// ValidateLinks checks every record against rules. Empty fields pass.
func ValidateLinks(items []Item, rules []LinkRule) error {
	for i, it := range items {
		for _, rule := range rules {
			raw, present := it[rule.Field]
			if !present || raw == nil {
				continue
			}
			s, ok := raw.(string)
			if !ok {
				return apperrors.Newf(apperrors.ErrInvalidRequest, "Invalid %s (item %d)", rule.Field, i)
			}
			if s == "" {
				continue
			}
			if !allowedURL(s, rule.Hosts) {
				return apperrors.Newf(apperrors.ErrInvalidRequest, "Invalid %s", rule.Field)
			}
		}
	}
	return nil
}

func allowedURL(s string, hosts []string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && slices.Contains(hosts, u.Host)
}
