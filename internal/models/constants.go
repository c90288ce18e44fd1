package models

const (
	// ContextSeparator joins retrieved chunks inside the prompt context field.
	ContextSeparator = "\n\n"

	// FallbackAnswer is the sentence the model is instructed to reply with
	// when the context does not contain the answer. It lives in the prompt
	// text only; a reply containing it is still a successful generation.
	FallbackAnswer = "I couldn't find that in the provided content."
)

// RAGPromptTemplate is filled with context, chat history and question, in that
// order. The instruction text must reach the model unaltered.
var RAGPromptTemplate = `You are an AI assistant with access to webpage content.
Use only the retrieved context and previous conversation to answer the question.
If the context does not contain the answer, say "I couldn't find that in the provided content."

Context:
%s

Chat History:
%s

Question:
%s

Answer:
`
