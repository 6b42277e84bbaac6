package cli

var SuggestAssets = suggestAssets
