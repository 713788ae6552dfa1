package ump

// Documentation is the human-readable description served to overlay hosts.
const Documentation = `# UMP Lookup Service

**Protocol Name**: UMP (User Management Protocol)
**Topic**: ` + "`" + DefaultTopic + "`" + `

---

## Overview

The UMP lookup service tracks the current UTXO of every UMP account token
admitted to the ` + "`" + DefaultTopic + "`" + ` topic. A UMP token is a push-drop output whose
fields describe an account. Two of those fields identify the account:

- field 6: the **presentation hash**, derived from the account's presentation key;
- field 7: the **recovery hash**, derived from the account's recovery key.

Each time an account is updated its token is spent and a new one is created.
The service follows those transitions so a client can always find the live token.

---

## Queries

Send exactly one of the following keys:

| Query | Example |
|---|---|
| presentation hash | ` + "`" + `{"presentationHash": "<64 hex chars>"}` + "`" + ` |
| recovery hash | ` + "`" + `{"recoveryHash": "<64 hex chars>"}` + "`" + ` |
| outpoint | ` + "`" + `{"outpoint": "<txid>.<outputIndex>"}` + "`" + ` |

The answer is a list holding at most one ` + "`" + `{"txid", "outputIndex"}` + "`" + ` entry.
An empty list means no live token matches.

---

## Gotchas and Tips

- **Newest wins**: while an old token has not yet been reported spent, two
  outputs can share a hash. The most recently admitted one is returned.
- **Key precedence**: if a query carries several keys, presentationHash is
  used first, then recoveryHash, then outpoint. Hosts running in strict mode
  reject such queries instead.
- **Not found is not an error**: unknown hashes yield an empty list.
`
