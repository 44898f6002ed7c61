package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockedTypes normalises configured names to CDP resource types. Both the
// singular CDP name and the plural config name are accepted.
func blockedTypes(types []string) map[proto.NetworkResourceType]bool {
	aliases := map[string]proto.NetworkResourceType{
		"images":      proto.NetworkResourceTypeImage,
		"fonts":       proto.NetworkResourceTypeFont,
		"stylesheets": proto.NetworkResourceTypeStylesheet,
	}
	out := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		name := strings.ToLower(strings.TrimSpace(t))
		if rt, ok := aliases[name]; ok {
			out[rt] = true
			continue
		}
		// CDP names are capitalised: Image, Font, Media, Stylesheet.
		if name != "" {
			out[proto.NetworkResourceType(strings.ToUpper(name[:1])+name[1:])] = true
		}
	}
	// Scripts carry the sidekick itself.
	delete(out, proto.NetworkResourceTypeScript)
	delete(out, proto.NetworkResourceTypeDocument)
	return out
}

// applyResourceBlocking fails requests of the blocked types. The returned
// router must be stopped when the page closes.
func applyResourceBlocking(page *rod.Page, types []string) *rod.HijackRouter {
	block := blockedTypes(types)
	if len(block) == 0 {
		return nil
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
