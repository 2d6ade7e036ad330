package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/catalog"
	"craft-flipping/pkg/logging"
)

// Message shapes, tried in order:
//
//	Diamond - $1,200 - Steve
//	[AH] Diamond: $1,200 (Steve)
//	Diamond for $1,200 by Steve
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(.+?)\s*-\s*\$([0-9,.]+)\s*-\s*(.+)`),
	regexp.MustCompile(`\[AH\]\s*(.+?):\s*\$([0-9,.]+)\s*\((.+?)\)`),
	regexp.MustCompile(`(.+?)\s+for\s+\$([0-9,.]+)\s+by\s+(.+)`),
}

var formatCodes = regexp.MustCompile(`§[0-9a-fk-or]`)

// Sighting is a price read off a chat line
type Sighting struct {
	Name   string
	Price  float64
	Seller string
}

// StripFormatting removes § colour and style codes
func StripFormatting(s string) string {
	return formatCodes.ReplaceAllString(s, "")
}

// ParseLine extracts a sighting from a chat line. False when no shape matches
// or the price does not parse.
func ParseLine(line string) (Sighting, bool) {
	line = StripFormatting(line)

	for _, re := range patterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			return Sighting{}, false
		}
		name := strings.TrimSpace(m[1])
		if name == "" {
			return Sighting{}, false
		}
		return Sighting{
			Name:   name,
			Price:  price,
			Seller: strings.TrimSpace(m[3]),
		}, true
	}

	return Sighting{}, false
}

// Ingester records a price under a good resolved by name (the price cache implements it)
type Ingester interface {
	IngestByName(name string, price float64, source string) (catalog.Good, error)
}

// Stats summarises a Consume call
type Stats struct {
	Lines      int
	Matched    int
	Ingested   int
	Unresolved int
}

// Capturer feeds chat sightings into the price cache
type Capturer struct {
	ingester Ingester
	logger   *logging.Logger
}

// NewCapturer creates a chat capturer
func NewCapturer(ingester Ingester, logger *logging.Logger) *Capturer {
	return &Capturer{
		ingester: ingester,
		logger:   logging.OrQuiet(logger),
	}
}

// Observe parses one line and ingests it. It returns the matched good, or false
// when the line is not a sighting or its name is not in the catalog.
func (c *Capturer) Observe(line string) (catalog.Good, bool) {
	s, ok := ParseLine(line)
	if !ok {
		return catalog.Good{}, false
	}
	return c.observe(s)
}

func (c *Capturer) observe(s Sighting) (catalog.Good, bool) {
	source := "chat"
	if s.Seller != "" {
		source = "chat:" + s.Seller
	}

	good, err := c.ingester.IngestByName(s.Name, s.Price, source)
	if err != nil {
		c.logger.WithComponent("capture").WithFields(logrus.Fields{
			"name":  s.Name,
			"price": s.Price,
		}).Debug("Ignoring sighting for unknown good")
		return catalog.Good{}, false
	}

	c.logger.WithComponent("capture").WithFields(logrus.Fields{
		"good":   good.ID,
		"price":  s.Price,
		"seller": s.Seller,
	}).Debug("Captured price from chat")
	return good, true
}

// Consume reads r line by line until EOF or ctx is done
func (c *Capturer) Consume(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++

		s, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		stats.Matched++

		if _, ok := c.observe(s); ok {
			stats.Ingested++
		} else {
			stats.Unresolved++
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading chat log: %w", err)
	}

	c.logger.WithComponent("capture").WithFields(logrus.Fields{
		"lines":      stats.Lines,
		"matched":    stats.Matched,
		"ingested":   stats.Ingested,
		"unresolved": stats.Unresolved,
	}).Info("Chat capture finished")

	return stats, nil
}
