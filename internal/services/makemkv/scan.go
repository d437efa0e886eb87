package makemkv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"amphigory/internal/disc"
)

// Scan invokes MakeMKV in info mode against device and parses the
// CINFO/TINFO/SINFO line families into a disc.ScanResult. Unlike Rip,
// scanning never writes output files, so there is nothing to clean up on
// failure.
func (c *Client) Scan(ctx context.Context, device string) (*disc.ScanResult, error) {
	deviceArg := normalizeDeviceArg(device)
	args := []string{"--robot", "info", deviceArg}

	var lines []string
	if err := c.exec.Run(ctx, c.binary, args, func(line string) {
		lines = append(lines, line)
		if strings.HasPrefix(line, "MSG:") && c.logger != nil {
			code := parseMSGCode(line)
			if code >= 5000 {
				c.logger.Warn("makemkv scan message",
					slog.String("event_type", "makemkv_scan_message"),
					slog.Int("msg_code", code),
					slog.String("msg_text", parseMSGText(line)),
				)
			}
		}
	}); err != nil {
		return nil, fmt.Errorf("makemkv scan: %w", err)
	}

	result, err := disc.ParseScan([]byte(strings.Join(lines, "\n")))
	if err != nil {
		return nil, fmt.Errorf("parse scan output: %w", err)
	}
	return result, nil
}
