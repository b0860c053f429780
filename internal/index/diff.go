package index

// AheadBehind compares a local manifest against an upstream one by entry
// content. Ahead counts local entries absent from or differing in the
// upstream; behind counts upstream entries absent from or differing in
// the local manifest. A path changed on both sides contributes to both
// counts, the same way diverged histories do.
func AheadBehind(local, upstream *Index) (ahead, behind int) {
	if local == nil || upstream == nil {
		return 0, 0
	}
	for i := range local.Files {
		f := &local.Files[i]
		up, ok := upstream.Lookup(f.Path)
		if !ok || up.OID != f.OID {
			ahead++
		}
	}
	for i := range upstream.Files {
		f := &upstream.Files[i]
		loc, ok := local.Lookup(f.Path)
		if !ok || loc.OID != f.OID {
			behind++
		}
	}
	return ahead, behind
}
