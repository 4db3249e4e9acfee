// Package chunker divides source files into token-budgeted chunks for embedding.
//
// Chunks follow declaration boundaries reported by a syntax boundary oracle
// (see package parser). Each declaration is windowed line by line until the
// estimated token count would exceed the budget; long declarations become
// several parts that overlap by a configurable number of lines.
//
// # Basic Usage
//
//	c, err := chunker.New(parser.DefaultRegistry(), chunker.DefaultOptions(), logger)
//	if err != nil {
//	    return err
//	}
//
//	result, err := c.Chunk(ctx, text, "src/OrderService.cs")
//	for _, chunk := range result.Chunks {
//	    fmt.Printf("%s part %d/%d, lines %d-%d\n",
//	        chunk.SectionKey, chunk.PartIndex, chunk.PartTotal, chunk.LineStart, chunk.LineEnd)
//	}
//
// # Chunk Layout
//
// The first chunk is a file summary holding the header comment and the
// import list, capped at SummaryMaxTokens. Declaration chunks follow in
// document order:
//   - A declaration's span starts at the comments and attributes directly above it
//   - Types that enclose other declarations keep only their header lines
//   - Files without declarations are windowed as a whole
//
// # Token Estimation
//
// Tokens are estimated as characters/4, rounded up, per line including its
// newline. A window always takes at least one line, so a single line over
// budget still produces a chunk.
//
// # Degraded Mode
//
// When the oracle cannot parse a file, the whole file is windowed and
// Result.Degraded is set so the caller can flag the file for review.
package chunker
