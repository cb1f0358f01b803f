// Package crawl implements the breadth-first site crawler that seeds the
// pipeline: the frontier, the Colly-backed page fetcher, link extraction,
// robots.txt policy, per-host pacing, and the sequential crawl engine.
package crawl
