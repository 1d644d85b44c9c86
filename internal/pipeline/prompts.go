package pipeline

const preprocessSystemPrompt = `You clean raw news text for downstream analysis. Remove boilerplate, navigation fragments, image captions, subscription prompts, advertising, and repeated headers. Keep every sentence of actual article content, in the original order and language. Respond with a valid JSON object: {"clean_text": "<cleaned article text>"}`

const preprocessUserPrompt = `Headline: %s

Raw text:
%s`

const relevanceSystemPrompt = `You decide whether a news article is relevant for a political and economic knowledge graph covering Latin America. Relevant topics: politics, government, economy, finance, justice, corruption, elections, social conflict, international relations, and public policy. Sports, celebrity, horoscope, and lifestyle content is irrelevant. Respond with a valid JSON object: {"relevant": <true|false>, "justification": "<one sentence>", "category": "<topic category>", "keywords": ["<keyword>", ...], "score": <0.0-1.0 relevance score>}`

const relevanceUserPrompt = `Outlet: %s (%s)
Headline: %s

Article text:
%s`

const translationSystemPrompt = `Translate the given news text into %s. Preserve proper names, institutions, quoted statements, and numeric figures exactly. Respond with a valid JSON object: {"translation": "<translated text>"}`

const extractionSystemPrompt = `Extract discrete facts and named entities from a news text. A fact is one self-contained factual claim. An entity is a person, organization, place, or institution mentioned in the text. Respond with a valid JSON object:
{"facts": [{"description": "<claim>", "type": "<political|economic|social|judicial|security|general>", "country": "<ISO 3166-1 alpha-2 or empty>", "date": "<YYYY-MM-DD, YYYY-MM, YYYY, or empty>", "is_future_event": <bool>, "preliminary_importance": <1-10>}],
 "entities": [{"name": "<canonical name>", "type": "<person|organization|place|institution>", "description": "<one line or empty>"}]}`

const extractionUserPrompt = `Source: %s
Headline: %s

Text:
%s`

const quotesSystemPrompt = `Extract verbatim quotes from a news text. Each quote must appear word-for-word in the text with an attributable speaker. Reference related facts and entities by the temporary ids listed below; use only ids from those lists. Respond with a valid JSON object: {"quotes": [{"text": "<verbatim quote>", "speaker": "<speaker name>", "entity_refs": [<temp ids>], "fact_refs": [<temp ids>]}]}`

const figuresSystemPrompt = `Extract quantitative data points from a news text: amounts, percentages, counts, measurements. Reference related facts and entities by the temporary ids listed below; use only ids from those lists. Respond with a valid JSON object: {"figures": [{"description": "<what is measured>", "value": <number>, "unit": "<unit or empty>", "entity_refs": [<temp ids>], "fact_refs": [<temp ids>]}]}`

const quotesFiguresUserPrompt = `Facts:
%s

Entities:
%s

Text:
%s`

const relationshipsSystemPrompt = `Identify relationships between the extracted facts and entities of one news text, referenced by temporary id. Kinds: fact_entity (a fact involves an entity), fact_fact (one fact follows from or elaborates another), entity_entity (two entities are directly related), contradiction (two facts contradict each other). Use only ids from the lists below. Respond with a valid JSON object: {"relationships": [{"kind": "<kind>", "from_temp_id": <id>, "to_temp_id": <id>, "type": "<short label or empty>"}]}`

const relationshipsUserPrompt = `Facts:
%s

Entities:
%s`
