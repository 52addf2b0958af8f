package compare

var (
	SplitRef  = splitRef
	ModelName = modelName
)
