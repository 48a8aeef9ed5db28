package ai

const ExtractPrompt = `
# Task Context
You are tasked with extracting **structured entity and relationship information** from the provided text. The process must capture **all details explicitly present in the text**, without omission.

# Background Data
- **Entity_types:** [%s]

# Detailed Task Description & Rules
## Entity Extraction
1. Identify all entities of the specified types.
2. For each entity, extract:
   - **name:** The name of the entity, written in **ALL CAPITAL LETTERS**.
   - **type:** One of the provided types.
   - **description:** A comprehensive description of all attributes, roles, activities, events, or other explicit details in the text. Do **not** omit any explicit information.
   - **importance:** a numeric score (0.0-1.0) for how central the entity is to the text.

## Relationship Extraction
1. From the identified entities, determine all clear relationships between pairs of entities.
2. For each relationship, extract:
   - **source:** name of the source entity, exactly as listed in the entities.
   - **target:** name of the target entity, exactly as listed in the entities.
   - **type:** a short UPPER_SNAKE_CASE label (e.g., WORKS_FOR, LOCATED_IN, CONNECTS_TO).
   - **description:** explanation of how and why the entities are related, based strictly on the text.
   - **weight:** a numeric score (0.0-1.0) indicating the strength of the relationship.
3. Every relationship must reference entity names present in the same output. If the text names no clear relationships, return an **empty array** for "relationships".

# Output Formatting
Return valid JSON only (no commentary, no extra text) with this structure:
{
  "entities": [{"name": string, "type": string, "description": string, "importance": number}],
  "relationships": [{"source": string, "target": string, "type": string, "description": string, "weight": number}]
}
`

const GleanPrompt = `
# Task Context
You previously extracted entities and relationships from a text. Some entities or relationships may have been missed. Your task is to find **only the items not yet extracted**.

# Background Data
- **Entity_types:** [%s]
- **Already_extracted_entities:** [%s]

# Detailed Task Description & Rules
- Re-read the text and identify entities of the specified types that are **not** in the already-extracted list.
- Identify relationships involving new entities, or between already-extracted entities, that were missed.
- Do **not** repeat entities from the already-extracted list.
- If nothing was missed, return empty arrays for both fields.

# Output Formatting
Return valid JSON only with the same structure as the original extraction:
{
  "entities": [{"name": string, "type": string, "description": string, "importance": number}],
  "relationships": [{"source": string, "target": string, "type": string, "description": string, "weight": number}]
}
`

const ClassifyPrompt = `
# Task Context
You classify a document into exactly one business domain based on a sample of its text.

# Detailed Task Description & Rules
- Choose exactly one of: LEGAL, TECHNICAL, FINANCIAL, MEDICAL, GENERAL.
- Base the decision only on the provided text sample.
- When no domain clearly dominates, choose GENERAL.

# Output Formatting
Return valid JSON only with this structure:
{
  "domain": string
}
`
