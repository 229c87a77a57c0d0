package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/contextcache/hybridmemory/types"
)

// abbreviations approximates sentence-ending punctuation that doesn't end a
// sentence. Exact abbreviation handling is explicitly an open question in
// the spec (§9); this is a fixed, deterministic approximation rather than an
// attempt to match any particular reference tokenizer.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "inc": true, "ltd": true, "co": true,
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SentenceChunker implements Chunker by packing sentences, honoring
// paragraph breaks, and seeding each new chunk with an overlap of the
// previous chunk's tail aligned to a sentence boundary when possible.
type SentenceChunker struct{}

// NewChunker constructs the default sentence/paragraph-aware Chunker.
func NewChunker() *SentenceChunker {
	return &SentenceChunker{}
}

// sentence is a half-open rune range into the chunked text, including its
// trailing whitespace, so that sentences tile the input with no gaps.
type sentence struct {
	start, end int
}

// Chunk implements Chunker.
func (c *SentenceChunker) Chunk(parentID, text string, params Params) []types.Chunk {
	if text == "" {
		return nil
	}
	params = params.withDefaults()
	runes := []rune(text)

	if len(runes) <= params.Min {
		return []types.Chunk{{
			ChunkID:          fmt.Sprintf("%s#0", parentID),
			ParentID:         parentID,
			Content:          text,
			Ordinal:          0,
			OverlapPrevChars: 0,
		}}
	}

	sentences := segmentSentences(runes)
	pieces := splitOversizeSentences(runes, sentences, params.Max)

	var chunks []types.Chunk
	pos := 0 // index into pieces of the next unconsumed piece
	cursorStart := 0
	ordinal := 0
	overlapChars := 0

	for pos < len(pieces) {
		chunkStart := cursorStart
		firstPieceIdx := pos
		lastPieceIdx := pos

		// After a raw-character overlap cut the chunk opens with overlap
		// characters ahead of pieces[pos]; they count toward the chunk's
		// length and are trimmed so that they plus the first piece fit Max.
		if excess := pieces[pos].end - chunkStart - params.Max; excess > 0 && chunkStart < pieces[pos].start {
			chunkStart = min(chunkStart+excess, pieces[pos].start)
			overlapChars = pieces[pos].start - chunkStart
		}
		chunkLen := pieces[pos].start - chunkStart

		for pos < len(pieces) {
			pieceLen := pieces[pos].end - pieces[pos].start
			if pos > firstPieceIdx && chunkLen+pieceLen > params.Target {
				break
			}
			chunkLen += pieceLen
			lastPieceIdx = pos
			pos++
			if chunkLen >= params.Target {
				break
			}
		}
		chunkEnd := pieces[lastPieceIdx].end
		sentenceCount := lastPieceIdx - firstPieceIdx + 1

		content := string(runes[chunkStart:chunkEnd])
		chunks = append(chunks, types.Chunk{
			ChunkID:          fmt.Sprintf("%s#%d", parentID, ordinal),
			ParentID:         parentID,
			Content:          content,
			Ordinal:          ordinal,
			OverlapPrevChars: overlapChars,
		})
		ordinal++

		if pos >= len(pieces) {
			break
		}

		// Compute overlap for the *next* chunk per spec §4.1 step 3.
		overlapChars = overlapFor(sentenceCount, params)

		wantStart := chunkEnd - overlapChars
		if wantStart < chunkStart {
			wantStart = chunkStart
		}

		// Align to the nearest piece boundary inside [wantStart, chunkEnd).
		alignedIdx := firstPieceIdx
		for i := firstPieceIdx; i <= lastPieceIdx; i++ {
			if pieces[i].start >= wantStart {
				alignedIdx = i
				break
			}
			alignedIdx = i + 1
		}
		if alignedIdx > lastPieceIdx {
			alignedIdx = lastPieceIdx + 1
		}
		// Guarantee forward progress even when the overlap window swallows
		// the whole chunk (can happen with small Target/large BaseOverlap).
		if alignedIdx <= firstPieceIdx {
			alignedIdx = firstPieceIdx + 1
		}

		var nextStart int
		if alignedIdx <= lastPieceIdx {
			nextStart = pieces[alignedIdx].start
			pos = alignedIdx
		} else {
			// No boundary found inside the window; fall back to the raw
			// character cut and resume packing from the next fresh piece.
			nextStart = wantStart
			pos = lastPieceIdx + 1
		}
		overlapChars = chunkEnd - nextStart
		cursorStart = nextStart
	}

	return mergeShortTrailingChunk(chunks, params.Min, params.Max)
}

// overlapFor implements spec §4.1 step 3's overlap schedule; with Adaptive
// off the overlap is always BaseOverlap (still capped).
func overlapFor(sentenceCount int, params Params) int {
	var mult int
	switch {
	case !params.Adaptive || sentenceCount <= 2:
		mult = 1
	case sentenceCount <= 5:
		mult = 2
	default:
		mult = 3
	}
	overlap := mult * params.BaseOverlap
	if cap := params.maxOverlap(); overlap > cap {
		overlap = cap
	}
	return overlap
}

// mergeShortTrailingChunk folds a final chunk shorter than min into its
// predecessor, per spec §4.1 step 5 ("emit chunks shorter than min only if
// the input itself is shorter than min" — here the input is longer, so a
// short trailing remainder must not be emitted standalone). The remainder
// stays a separate chunk when the merged chunk would exceed max.
func mergeShortTrailingChunk(chunks []types.Chunk, min, max int) []types.Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	last := chunks[len(chunks)-1]
	if len([]rune(last.Content)) >= min {
		return chunks
	}
	prev := chunks[len(chunks)-2]
	prevOverlap := last.OverlapPrevChars
	// The merged content is prev's content plus last's non-overlapping tail.
	lastRunes := []rune(last.Content)
	if len([]rune(prev.Content))+len(lastRunes)-prevOverlap > max {
		return chunks
	}
	tail := string(lastRunes[prevOverlap:])
	merged := types.Chunk{
		ChunkID:          prev.ChunkID,
		ParentID:         prev.ParentID,
		Content:          prev.Content + tail,
		Ordinal:          prev.Ordinal,
		OverlapPrevChars: prev.OverlapPrevChars,
	}
	out := append(chunks[:len(chunks)-2:len(chunks)-2], merged)
	return out
}

// segmentSentences splits runes into paragraph-then-sentence spans that
// tile the input exactly (each sentence's range includes its trailing
// whitespace up to the start of the next sentence).
func segmentSentences(runes []rune) []sentence {
	var bounds []int // rune indices right after a genuine sentence terminator
	n := len(runes)
	for i := 0; i < n; i++ {
		r := runes[i]
		if r == '\n' {
			// A whitespace run holding a blank line ends a paragraph.
			j, newlines := i, 0
			for j < n && unicode.IsSpace(runes[j]) {
				if runes[j] == '\n' {
					newlines++
				}
				j++
			}
			if newlines >= 2 {
				bounds = append(bounds, j)
			}
			i = j - 1
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && isDecimalPoint(runes, i) {
			continue
		}
		// Consume any run of terminal punctuation/quotes/brackets.
		j := i
		for j < n && strings.ContainsRune(".!?\"')]", runes[j]) {
			j++
		}
		if r == '.' && endsAbbreviation(runes, i) {
			i = j - 1
			continue
		}
		if j < n && !unicode.IsSpace(runes[j]) {
			// Not followed by whitespace or EOF — not a boundary (e.g. ellipsis mid-word).
			i = j - 1
			continue
		}
		// The sentence keeps its trailing whitespace.
		for j < n && unicode.IsSpace(runes[j]) {
			j++
		}
		bounds = append(bounds, j)
		i = j - 1
	}

	var sentences []sentence
	start := 0
	for _, b := range bounds {
		if b <= start {
			continue
		}
		sentences = append(sentences, sentence{start: start, end: b})
		start = b
	}
	if start < n {
		sentences = append(sentences, sentence{start: start, end: n})
	}
	if len(sentences) == 0 {
		sentences = append(sentences, sentence{start: 0, end: n})
	}
	return sentences
}

func isDecimalPoint(runes []rune, i int) bool {
	if i == 0 || i+1 >= len(runes) {
		return false
	}
	return unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

// endsAbbreviation reports whether the word ending at the period at index i
// is a known abbreviation.
func endsAbbreviation(runes []rune, periodIdx int) bool {
	j := periodIdx
	for j > 0 && !unicode.IsSpace(runes[j-1]) {
		j--
	}
	word := strings.ToLower(string(runes[j:periodIdx]))
	return abbreviations[word]
}

// splitOversizeSentences further splits any sentence longer than max on
// whitespace boundaries, so no piece ever exceeds max.
func splitOversizeSentences(runes []rune, sentences []sentence, max int) []sentence {
	var out []sentence
	for _, s := range sentences {
		if s.end-s.start <= max {
			out = append(out, s)
			continue
		}
		out = append(out, splitOnWhitespace(runes, s, max)...)
	}
	return out
}

func splitOnWhitespace(runes []rune, s sentence, max int) []sentence {
	text := string(runes[s.start:s.end])
	locs := whitespaceRun.FindAllStringIndex(text, -1)

	var pieces []sentence
	pieceStart := s.start
	lastCut := s.start
	for _, loc := range locs {
		cut := s.start + loc[1] // end of the whitespace run, as a byte offset
		// FindAllStringIndex gives byte offsets; text here is ASCII-safe
		// in the common case, but to stay correct for multibyte runes we
		// recompute by counting runes up to the byte offset.
		cut = s.start + runeOffset(text, loc[1])
		if cut-pieceStart >= max {
			pieces = append(pieces, sentence{start: pieceStart, end: lastCut})
			pieceStart = lastCut
		}
		lastCut = cut
	}
	if s.end > pieceStart {
		pieces = append(pieces, sentence{start: pieceStart, end: s.end})
	}
	if len(pieces) == 0 {
		pieces = append(pieces, s)
	}
	return pieces
}

// runeOffset converts a byte offset within s to a rune offset.
func runeOffset(s string, byteOffset int) int {
	return len([]rune(s[:byteOffset]))
}
