package cmd

import (
	"fmt"
	"os"

	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/engine"
	"github.com/gridrank/gridrank/pkg/match"
	"github.com/gridrank/gridrank/pkg/scan/orchestrator"
	"github.com/gridrank/gridrank/pkg/stealth"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

// buildRegistry wires up every available engine over a shared proxy rotator.
// The Bing API engine only registers when a key is configured.
func buildRegistry() *engine.Registry {
	proxies := stealth.NewProxyRotator()
	if proxies.Count() > 0 {
		log.Info().Int("proxies", proxies.Count()).Msg("Proxy rotation enabled")
	}

	registry := engine.NewRegistry()
	registry.Register(engine.NewGoogleSearchEngine(proxies))
	registry.Register(engine.NewGoogleLocalFinderEngine(proxies))
	registry.Register(engine.NewGoogleMapsEngine(proxies))
	registry.Register(engine.NewBingSearchEngine(proxies))
	registry.Register(engine.NewDuckDuckGoEngine(proxies))
	if bingAPI := engine.NewBingAPIEngine(proxies); bingAPI.HasAPIKey() {
		registry.Register(bingAPI)
	}
	return registry
}

// buildOrchestrator assembles the scan pipeline against the shared database
// connection.
func buildOrchestrator(registry *engine.Registry) *orchestrator.Orchestrator {
	conn := db.Connection()
	matcher := match.NewMatcher(conn)
	return orchestrator.NewOrchestrator(conn, registry, matcher)
}

// tableRower is satisfied by the db models that render as CLI tables.
type tableRower interface {
	TableHeaders() []string
	TableRow() []string
}

func printTable[T tableRower](rows []T) {
	if len(rows) == 0 {
		fmt.Println("No results")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(rows[0].TableHeaders())
	for _, row := range rows {
		table.Append(row.TableRow())
	}
	table.SetBorder(true)
	table.Render()
}
