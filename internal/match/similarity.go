package match

// Similarity computes a Ratcliff/Obershelp sequence ratio between two
// strings, 0 for disjoint and 1 for identical. Compare pre-normalized input;
// this function does no folding of its own.
func Similarity(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1
	}
	if len(ar) == 0 || len(br) == 0 {
		return 0
	}
	matched := matchingChars(ar, br)
	return 2 * float64(matched) / float64(total)
}

// matchingChars sums the lengths of the longest common substring and,
// recursively, the matches in the unmatched regions on either side of it.
func matchingChars(a, b []rune) int {
	aStart, bStart, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	matched := size
	matched += matchingChars(a[:aStart], b[:bStart])
	matched += matchingChars(a[aStart+size:], b[bStart+size:])
	return matched
}

func longestCommonSubstring(a, b []rune) (aStart, bStart, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	// prev[j] is the length of the common suffix ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				current[j] = prev[j-1] + 1
				if current[j] > size {
					size = current[j]
					aStart = i - size
					bStart = j - size
				}
			} else {
				current[j] = 0
			}
		}
		prev, current = current, prev
	}
	return aStart, bStart, size
}
