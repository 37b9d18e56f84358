package server

import (
	"strings"

	"github.com/emiago/diago"
	"github.com/emiago/sipgo/sip"
)

func extractCallerPhone(headers []sip.Header) string {
	for _, header := range headers {
		if header.Name() == "From" {
			from := header.Value()
			if after, ok := strings.CutPrefix(from, "<sip:"); ok {
				parts := strings.Split(strings.TrimSuffix(after, ">"), "@")
				return parts[0]
			}
		}
	}
	return "unknown"
}

func extractCallee(inDialog *diago.DialogServerSession) string {
	if to := inDialog.InviteRequest.To(); to != nil {
		return to.Address.User
	}
	return ""
}
