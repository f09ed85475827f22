package filter

// Ratio returns a similarity score in [0,1] between two strings, computed over
// runes as (|a|+|b|-d)/(|a|+|b|) where d is the insert/delete edit distance
// (a substitution costs 2). Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	d := indelDistance(ra, rb)
	return float64(total-d) / float64(total)
}

// indelDistance is Levenshtein with substitution weighted 2.
func indelDistance(a, b []rune) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	// Two-row DP
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+2)
			}
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
