package rounds

import "sort"

// Rank ordena submissions por votos (desc) com desempate por created_at
// (quem mandou primeiro ganha o empate) e, por último, id. Ordem total e
// reproduzível: o mesmo snapshot de votos sempre produz o mesmo ranking.
func Rank(subs []Submission) []Submission {
	out := make([]Submission, len(subs))
	copy(out, subs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Promote devolve o prefixo do ranking que vira o acca final.
// Se houver menos submissions que n, promove todas.
func Promote(subs []Submission, n int) []Submission {
	ranked := Rank(subs)
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// CombinedOdds é o preço do acca: produto das odds decimais das pernas.
func CombinedOdds(legs []Submission) float64 {
	if len(legs) == 0 {
		return 0
	}
	total := 1.0
	for _, l := range legs {
		total *= l.OddsDecimal
	}
	return total
}
