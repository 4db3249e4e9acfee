// Package types provides shared type definitions for the nuvos indexer.
//
// These are the domain types passed between the discovery walker, the syntax
// boundary oracles, the chunker, the indexer and the searcher.
//
// # Core Types
//
// DiscoveredFile is one file found by a discovery pass:
//
//	f := types.DiscoveredFile{
//	    RepoID:       "shop",
//	    RelativePath: "src/Orders/OrderService.cs",
//	}
//
// Symbol is a declaration span reported by a syntax oracle. Lines are
// 1-based and inclusive:
//
//	sym := types.Symbol{
//	    Name:      "PlaceOrder",
//	    Kind:      types.KindMethod,
//	    Parent:    "OrderService",
//	    StartLine: 42,
//	    EndLine:   77,
//	}
//
// Chunk is a token-budgeted slice of one symbol (or of the whole file).
// A symbol that exceeds the budget is split into parts; PartIndex runs
// from 1 to PartTotal and consecutive parts may overlap by a few lines:
//
//	for _, c := range chunks {
//	    fmt.Printf("%s part %d/%d lines %d-%d\n",
//	        c.SectionKey, c.PartIndex, c.PartTotal, c.LineStart, c.LineEnd)
//	}
//
// # Errors
//
// ErrInvalidArgument marks contract violations (empty identity inputs and
// the like); callers should never retry them. ErrConfig marks configuration
// problems found before any file is touched.
package types
